package vision

// Batch accumulates encoded frames until it reaches its size. It is owned by
// a single goroutine.
type Batch struct {
	size   int
	images []EncodedImage
}

// NewBatch creates a Batch; size <= 0 means 1.
func NewBatch(size int) *Batch {
	if size <= 0 {
		size = 1
	}
	return &Batch{size: size, images: make([]EncodedImage, 0, size)}
}

// Add appends img and reports whether the batch is now full.
func (b *Batch) Add(img EncodedImage) bool {
	b.images = append(b.images, img)
	return len(b.images) >= b.size
}

// Len returns the number of buffered images.
func (b *Batch) Len() int { return len(b.images) }

// Take moves the buffered images out and resets the batch.
func (b *Batch) Take() []EncodedImage {
	out := b.images
	b.images = make([]EncodedImage, 0, b.size)
	return out
}
