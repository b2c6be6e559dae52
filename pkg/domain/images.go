package domain

import (
	"encoding/json"
	"time"
)

// MaxImages is the hard cap on images per collection.
const MaxImages = 100

// Image is one item of an ordered image collection.
type Image struct {
	ImageID    string            `json:"imageId"`
	URLs       map[string]string `json:"urls"`
	UploadedAt time.Time         `json:"uploadedAt"`
	AltText    string            `json:"altText"`
}

// ImageCollection is an insertion-ordered, immutable image sequence.
// Every operation returns a new instance; interior slices are never shared
// with callers.
type ImageCollection struct {
	items []Image
}

// NewImageCollection builds a collection from the given images, rejecting
// duplicates and overflow.
func NewImageCollection(items ...Image) (ImageCollection, error) {
	if len(items) > MaxImages {
		return ImageCollection{}, RuleViolation("image collection cannot exceed %d images", MaxImages)
	}
	seen := make(map[string]struct{}, len(items))
	for _, img := range items {
		if img.ImageID == "" {
			return ImageCollection{}, RuleViolation("image id is required")
		}
		if _, dup := seen[img.ImageID]; dup {
			return ImageCollection{}, RuleViolation("duplicate image id %q", img.ImageID)
		}
		seen[img.ImageID] = struct{}{}
	}
	return ImageCollection{items: cloneImages(items)}, nil
}

// Count returns the number of images.
func (c ImageCollection) Count() int { return len(c.items) }

// IDs returns the image ids in collection order.
func (c ImageCollection) IDs() []string {
	ids := make([]string, len(c.items))
	for i, img := range c.items {
		ids[i] = img.ImageID
	}
	return ids
}

// Items returns a copy of the images in collection order.
func (c ImageCollection) Items() []Image { return cloneImages(c.items) }

// Get returns a copy of the image with the given id.
func (c ImageCollection) Get(imageID string) (Image, bool) {
	for _, img := range c.items {
		if img.ImageID == imageID {
			return cloneImage(img), true
		}
	}
	return Image{}, false
}

// Add appends an image, returning the extended collection.
func (c ImageCollection) Add(img Image) (ImageCollection, error) {
	if img.ImageID == "" {
		return c, RuleViolation("image id is required")
	}
	if len(c.items) >= MaxImages {
		return c, RuleViolation("image collection cannot exceed %d images", MaxImages)
	}
	if _, exists := c.Get(img.ImageID); exists {
		return c, RuleViolation("image %q already exists", img.ImageID)
	}
	items := cloneImages(c.items)
	return ImageCollection{items: append(items, cloneImage(img))}, nil
}

// Remove drops the image with the given id.
func (c ImageCollection) Remove(imageID string) (ImageCollection, error) {
	items := make([]Image, 0, len(c.items))
	found := false
	for _, img := range c.items {
		if img.ImageID == imageID {
			found = true
			continue
		}
		items = append(items, img)
	}
	if !found {
		return c, RuleViolation("image %q not found", imageID)
	}
	return ImageCollection{items: items}, nil
}

// Reorder rearranges the collection to match orderedIDs, which must be a
// permutation of the current id set.
func (c ImageCollection) Reorder(orderedIDs []string) (ImageCollection, error) {
	if len(orderedIDs) != len(c.items) {
		return c, RuleViolation("reorder requires all %d image ids, got %d", len(c.items), len(orderedIDs))
	}
	byID := make(map[string]Image, len(c.items))
	for _, img := range c.items {
		byID[img.ImageID] = img
	}
	items := make([]Image, 0, len(orderedIDs))
	for _, id := range orderedIDs {
		img, ok := byID[id]
		if !ok {
			return c, RuleViolation("image %q not found", id)
		}
		delete(byID, id)
		items = append(items, img)
	}
	return ImageCollection{items: items}, nil
}

// UpdateAltText replaces the alt text of one image.
func (c ImageCollection) UpdateAltText(imageID, altText string) (ImageCollection, error) {
	items := cloneImages(c.items)
	for i := range items {
		if items[i].ImageID == imageID {
			items[i].AltText = altText
			return ImageCollection{items: items}, nil
		}
	}
	return c, RuleViolation("image %q not found", imageID)
}

// Equal reports whether two collections hold the same images in the same
// order.
func (c ImageCollection) Equal(other ImageCollection) bool {
	if len(c.items) != len(other.items) {
		return false
	}
	a, _ := json.Marshal(c.items)
	b, _ := json.Marshal(other.items)
	return string(a) == string(b)
}

// MarshalJSON encodes the collection as a JSON array.
func (c ImageCollection) MarshalJSON() ([]byte, error) {
	if c.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.items)
}

// UnmarshalJSON decodes a JSON array into the collection.
func (c *ImageCollection) UnmarshalJSON(data []byte) error {
	var items []Image
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	c.items = items
	return nil
}

// cloneImage copies the struct and its URLs map, so callers never hold a
// reference into the collection's interior.
func cloneImage(img Image) Image {
	if img.URLs != nil {
		urls := make(map[string]string, len(img.URLs))
		for k, v := range img.URLs {
			urls[k] = v
		}
		img.URLs = urls
	}
	return img
}

func cloneImages(items []Image) []Image {
	out := make([]Image, len(items))
	for i, img := range items {
		out[i] = cloneImage(img)
	}
	return out
}
