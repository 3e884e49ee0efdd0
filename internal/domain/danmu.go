package domain

import "time"

const (
	DanmuMaxLength      = 500
	DefaultDanmuColor   = "#ffffff"
	DefaultDanmuFill    = "transparent"
	DefaultDanmuFont    = "Arial"
	DefaultDanmuSize    = DanmuMedium
	DefaultDanmuPos     = DanmuScroll
	DefaultDanmuFontPx  = 16
	DefaultDanmuDisplay = 5 * time.Second
)

type DanmuSize string

const (
	DanmuSmall  DanmuSize = "small"
	DanmuMedium DanmuSize = "medium"
	DanmuLarge  DanmuSize = "large"
)

type DanmuPosition string

const (
	DanmuScroll DanmuPosition = "scroll"
	DanmuTop    DanmuPosition = "top"
	DanmuBottom DanmuPosition = "bottom"
)

type DanmuStyle struct {
	Color           string        `json:"color"`
	Size            DanmuSize     `json:"size"`
	Position        DanmuPosition `json:"position"`
	FontSize        int           `json:"font_size"`
	FontFamily      string        `json:"font_family"`
	BackgroundColor string        `json:"background_color"`
	BorderColor     string        `json:"border_color"`
}

type Danmu struct {
	ID        int64      `db:"id" json:"id"`
	RoomID    string     `db:"room_id" json:"room_id"`
	UserID    int64      `db:"user_id" json:"user_id"`
	Content   string     `db:"content" json:"content"`
	Style     DanmuStyle `db:"-" json:"style"`
	IsVIP     bool       `db:"is_vip" json:"is_vip"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// PopularDanmu is a danmu text and how often it was sent in a window.
type PopularDanmu struct {
	Content string `json:"content"`
	Count   int64  `json:"count"`
}
