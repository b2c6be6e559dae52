package domain_test

import (
	"errors"
	"testing"

	"github.com/plaenen/commercecore/pkg/domain"
	"github.com/stretchr/testify/require"
)

func collection(t *testing.T, ids ...string) domain.ImageCollection {
	t.Helper()
	imgs := make([]domain.Image, len(ids))
	for i, id := range ids {
		imgs[i] = domain.Image{
			ImageID:    id,
			URLs:       map[string]string{"original": "https://cdn.example.com/" + id},
			UploadedAt: domain.Now(),
		}
	}
	c, err := domain.NewImageCollection(imgs...)
	require.NoError(t, err)
	return c
}

func TestImageCollectionReorder(t *testing.T) {
	c := collection(t, "A", "B", "C")

	t.Run("PermutationPreservesCountAndSetsOrder", func(t *testing.T) {
		got, err := c.Reorder([]string{"C", "A", "B"})
		require.NoError(t, err)
		require.Equal(t, []string{"C", "A", "B"}, got.IDs())
		require.Equal(t, c.Count(), got.Count())
	})

	t.Run("WrongCountIsRuleViolation", func(t *testing.T) {
		_, err := c.Reorder([]string{"C", "A"})
		require.True(t, errors.Is(err, domain.ErrDomainRule))
	})

	t.Run("UnknownIDIsRuleViolation", func(t *testing.T) {
		_, err := c.Reorder([]string{"C", "A", "X"})
		require.True(t, errors.Is(err, domain.ErrDomainRule))
	})

	t.Run("OriginalUnchanged", func(t *testing.T) {
		_, err := c.Reorder([]string{"B", "C", "A"})
		require.NoError(t, err)
		require.Equal(t, []string{"A", "B", "C"}, c.IDs())
	})
}

func TestImageCollectionAddRemoveRoundTrip(t *testing.T) {
	c := collection(t, "A", "B")
	img := domain.Image{ImageID: "X", UploadedAt: domain.Now()}

	added, err := c.Add(img)
	require.NoError(t, err)
	require.Equal(t, 3, added.Count())

	back, err := added.Remove("X")
	require.NoError(t, err)
	require.True(t, c.Equal(back), "add then remove must restore the collection")
}

func TestImageCollectionCap(t *testing.T) {
	imgs := make([]domain.Image, domain.MaxImages)
	for i := range imgs {
		imgs[i] = domain.Image{ImageID: string(rune('a')) + string(rune('0'+i%10)) + string(rune('A'+i/10))}
	}
	full, err := domain.NewImageCollection(imgs...)
	require.NoError(t, err)

	_, err = full.Add(domain.Image{ImageID: "overflow"})
	require.True(t, errors.Is(err, domain.ErrDomainRule))
}

func TestImageCollectionDoesNotShareURLMaps(t *testing.T) {
	c := collection(t, "A", "B")

	items := c.Items()
	items[0].URLs["original"] = "https://mutated"
	items[0].URLs["thumb"] = "https://injected"

	got, ok := c.Get("A")
	require.True(t, ok)
	require.Equal(t, "https://cdn.example.com/A", got.URLs["original"])
	require.NotContains(t, got.URLs, "thumb")

	// The same holds for single-image reads and for images added later.
	got.URLs["original"] = "https://mutated-again"
	again, _ := c.Get("A")
	require.Equal(t, "https://cdn.example.com/A", again.URLs["original"])

	src := domain.Image{ImageID: "C", URLs: map[string]string{"original": "https://c"}}
	added, err := c.Add(src)
	require.NoError(t, err)
	src.URLs["original"] = "https://hijacked"
	fromAdded, _ := added.Get("C")
	require.Equal(t, "https://c", fromAdded.URLs["original"])
}

func TestImageCollectionRules(t *testing.T) {
	c := collection(t, "A")

	_, err := c.Add(domain.Image{ImageID: "A"})
	require.True(t, errors.Is(err, domain.ErrDomainRule), "duplicate id")

	_, err = c.Remove("missing")
	require.True(t, errors.Is(err, domain.ErrDomainRule))

	updated, err := c.UpdateAltText("A", "front view")
	require.NoError(t, err)
	img, ok := updated.Get("A")
	require.True(t, ok)
	require.Equal(t, "front view", img.AltText)

	orig, _ := c.Get("A")
	require.Empty(t, orig.AltText, "update must not mutate the original")
}
