package wizard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogWalk(t *testing.T) {
	catalog := Default()
	themes := catalog.Themes()
	require.Len(t, themes, 6)
	assert.Equal(t, "お金・家計", themes[0])

	for _, theme := range themes {
		sits, err := catalog.Situations(theme)
		require.NoError(t, err, theme)
		assert.NotEmpty(t, sits)
		for _, sit := range sits {
			_, err := catalog.Examples(theme, sit)
			assert.NoError(t, err, "%s / %s", theme, sit)
		}
	}

	examples, err := catalog.Examples("お金・家計", "買うか迷う")
	require.NoError(t, err)
	assert.Len(t, examples, 3)

	examples, err = catalog.Examples("お金・家計", "投資や貯金の判断")
	require.NoError(t, err)
	assert.NotNil(t, examples)
	assert.Empty(t, examples)
}

func TestCatalogValidate(t *testing.T) {
	catalog := Default()
	tests := []struct {
		name string
		sel  Selection
		want error
	}{
		{"ok", Selection{Theme: "仕事・キャリア", Situation: "資格取得するか"}, nil},
		{"unknown theme", Selection{Theme: "旅行", Situation: "買うか迷う"}, ErrUnknownTheme},
		{"mismatched situation", Selection{Theme: "仕事・キャリア", Situation: "買うか迷う"}, ErrUnknownSituation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := catalog.Validate(tc.sel)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := catalog.Situations("旅行")
	assert.ErrorIs(t, err, ErrUnknownTheme)
}

func TestCatalogReturnsCopies(t *testing.T) {
	catalog := Default()
	themes := catalog.Themes()
	themes[0] = "changed"
	assert.Equal(t, "お金・家計", catalog.Themes()[0])
}

func TestMakePreview(t *testing.T) {
	assert.Equal(t, "", MakePreview(""))
	assert.Equal(t, "", MakePreview("  "))
	assert.Equal(t, "", MakePreview(NoExamplePlaceholder))
	assert.Equal(t,
		"就寝時間が遅い。改善策を小さく始めたい。\n判断材料を整理し、短期と長期の視点の両方から検討したいです。",
		MakePreview("就寝時間が遅い。改善策を小さく始めたい。"),
	)
}
