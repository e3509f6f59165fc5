package post

// MixedMediaMode controls what happens to attachment sets no single-message
// rule covers.
type MixedMediaMode string

const (
	// MixedMediaGroup sends same-kind sets as a media group.
	MixedMediaGroup MixedMediaMode = "group"
	// MixedMediaText drops the attachments and sends text only.
	MixedMediaText MixedMediaMode = "text"
)

// Shape is the message layout chosen for a post.
type Shape interface {
	isShape()
}

type TextOnly struct{}

type PhotoGroup struct {
	Photos []Attachment
}

type SinglePhoto struct {
	Photo Attachment
}

type SingleVideo struct {
	Video Attachment
}

type SingleDocument struct {
	Document Attachment
}

// MediaGroup is a group of same-kind videos or documents.
type MediaGroup struct {
	Kind  AttachmentType
	Items []Attachment
}

// Fallback sends the text alone; Dropped lists what was left out.
type Fallback struct {
	Dropped []Attachment
}

func (TextOnly) isShape()       {}
func (PhotoGroup) isShape()     {}
func (SinglePhoto) isShape()    {}
func (SingleVideo) isShape()    {}
func (SingleDocument) isShape() {}
func (MediaGroup) isShape()     {}
func (Fallback) isShape()       {}

// Classify picks the shape for attachments; the first matching rule wins:
// none, more than one image, one image, one video, one file, then the
// mixed-media fallback.
func Classify(attachments []Attachment, mode MixedMediaMode) Shape {
	if len(attachments) == 0 {
		return TextOnly{}
	}

	var images, videos, files []Attachment
	for _, a := range attachments {
		switch a.Type {
		case AttachmentImage:
			images = append(images, a)
		case AttachmentVideo:
			videos = append(videos, a)
		case AttachmentFile:
			files = append(files, a)
		}
	}

	switch {
	case len(images) > 1:
		return PhotoGroup{Photos: images}
	case len(images) == 1:
		return SinglePhoto{Photo: images[0]}
	case len(videos) == 1:
		return SingleVideo{Video: videos[0]}
	case len(files) == 1:
		return SingleDocument{Document: files[0]}
	}

	if mode == MixedMediaGroup {
		// telegram only groups documents with documents
		if len(videos) > 1 && len(files) == 0 {
			return MediaGroup{Kind: AttachmentVideo, Items: videos}
		}
		if len(files) > 1 && len(videos) == 0 {
			return MediaGroup{Kind: AttachmentFile, Items: files}
		}
	}
	return Fallback{Dropped: attachments}
}
