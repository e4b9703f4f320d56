package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Recorder is an append-only decision log.
type Recorder interface {
	Append(ctx context.Context, rec *DecisionRecord) error
	List(ctx context.Context, opts DecisionQuery) ([]DecisionRecord, int64, error)
	Close() error
}

// DecisionQuery encapsulates filters and pagination for listing decisions.
type DecisionQuery struct {
	Query  string
	Label  string
	Sort   string
	Offset int
	Limit  int
}

// Newest reports whether the query asks for reverse append order.
func (q DecisionQuery) Newest() bool {
	return strings.EqualFold(strings.TrimSpace(q.Sort), "newest")
}

// Matches applies the text and label filters to rec.
func (q DecisionQuery) Matches(rec *DecisionRecord) bool {
	if text := strings.TrimSpace(q.Query); text != "" && !strings.Contains(rec.Text, text) {
		return false
	}
	if label := strings.TrimSpace(q.Label); label != "" && !rec.HasLabel(label) {
		return false
	}
	return true
}

// Page filters, orders and slices records held in append order. It is used by
// recorders that cannot push the query down to a database.
func (q DecisionQuery) Page(records []DecisionRecord) ([]DecisionRecord, int64) {
	matched := make([]DecisionRecord, 0, len(records))
	for i := range records {
		if q.Matches(&records[i]) {
			matched = append(matched, records[i])
		}
	}
	if q.Newest() {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}
	total := int64(len(matched))
	start := q.Offset
	if start < 0 {
		start = 0
	}
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	return matched[start:end], total
}

// Database wraps the GORM DB handle and exposes repository helpers.
type Database struct {
	gorm *gorm.DB
	mu   sync.Mutex
}

// Open initializes the SQLite-backed database at the provided path.
func Open(path string, silent bool) (*Database, error) {
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&DecisionRecord{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		logrus.WithError(err).Warn("enable WAL mode")
	}
	if err := db.Exec("PRAGMA synchronous=FULL").Error; err != nil {
		logrus.WithError(err).Warn("set synchronous pragma")
	}
	return &Database{gorm: db}, nil
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	if d == nil {
		return nil
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Append validates and inserts a new decision row. Existing rows are never updated.
func (d *Database) Append(ctx context.Context, rec *DecisionRecord) error {
	if err := Prepare(rec); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.gorm.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("append decision: %w", err)
	}
	return nil
}

// Prepare validates rec and fills its identity and timestamp. Recorders call
// it before writing.
func Prepare(rec *DecisionRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.ID != 0 {
		return fmt.Errorf("%w: already stored as %d", ErrInvalid, rec.ID)
	}
	if rec.PublicID == "" {
		rec.PublicID = uuid.NewString()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	if rec.OptionsJSON == "" {
		rec.SetOptions(nil)
	}
	if rec.InterventionsJSON == "" {
		rec.SetInterventions(nil)
	}
	if rec.BiasesJSON == "" {
		rec.SetFindings(nil)
	}
	return nil
}

// CountDecisions returns the number of stored decisions.
func (d *Database) CountDecisions(ctx context.Context) (int64, error) {
	var count int64
	if err := d.gorm.WithContext(ctx).Model(&DecisionRecord{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// List returns paginated decisions in append order applying optional filters.
func (d *Database) List(ctx context.Context, opts DecisionQuery) ([]DecisionRecord, int64, error) {
	filtered := func() *gorm.DB {
		q := d.gorm.WithContext(ctx).Model(&DecisionRecord{})
		// instr is a case-sensitive literal match, the same as DecisionQuery.Matches.
		if text := strings.TrimSpace(opts.Query); text != "" {
			q = q.Where("instr(text, ?) > 0", text)
		}
		if label := strings.TrimSpace(opts.Label); label != "" {
			q = q.Where("(instr(biases_json, ?) > 0 OR instr(biases_json, ?) > 0)",
				`"label":`+quoteJSON(label),
				`"type":`+quoteJSON(label),
			)
		}
		return q
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "id ASC"
	if opts.Newest() {
		order = "id DESC"
	}
	query := filtered().Order(order).Offset(opts.Offset)
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	var rows []DecisionRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func quoteJSON(s string) string {
	return encodeJSON(s)
}
