package l1frames

// GocvConfig selects an OpenCV capture device or file.
type GocvConfig struct {
	Device string // numeric camera index or a file/URL
	Width  int
	Height int
	FPS    int
}
