package swap_common

import "path/filepath"

// Upload is an image file received from a client, kept in memory until
// it is normalized and fingerprinted.
type Upload struct {
	Filename string
	Content  []byte
}

func (u Upload) Ext() string {
	return filepath.Ext(u.Filename)
}
