package http

import "github.com/cwrk-planet/live-service/internal/domain"

type ChatHistoryResponse struct {
	Items      []domain.ChatMessage `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

type DanmuHistoryResponse struct {
	Items      []domain.Danmu `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type PopularDanmuResponse struct {
	Window string                `json:"window"`
	Items  []domain.PopularDanmu `json:"items"`
}

type TransactionsResponse struct {
	Items []domain.GiftTransaction `json:"items"`
}

type RechargeRequest struct {
	Amount int64 `json:"amount"`
}
