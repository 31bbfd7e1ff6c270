package models

// Upload is an image received with a chat request. Its type is sniffed from Data.
type Upload struct {
	Filename string
	Data     []byte
}
