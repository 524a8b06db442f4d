package dto

// MediaSelectionSave is the body of POST /api/media/selection.
// A null or empty video clears it; an empty playlist means every audio file.
type MediaSelectionSave struct {
	Video         *string  `json:"video"`
	AudioPlaylist []string `json:"audioPlaylist"`
}

// VideoLoop is the body of POST /api/media/loop.
type VideoLoop struct {
	VideoLooping *bool `json:"videoLooping"`
}

// MediaDelete is the body of DELETE /api/media.
type MediaDelete struct {
	FilePath string `json:"filePath"`
	Type     string `json:"type"`
}
