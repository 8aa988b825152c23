package dto

import (
	"encoding/json"
	"time"
)

type PublishRequest struct {
	UserID  string          `json:"userId"`
	UserIDs []string        `json:"userIds,omitempty"`
	Kind    string          `json:"kind"`
	Title   string          `json:"title"`
	Body    string          `json:"body"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Notification struct {
	ID        string          `json:"id"`
	Kind      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	Delivered bool            `json:"delivered"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"createdAt"`
}

type PublishResponse struct {
	Notification *Notification `json:"notification,omitempty"`
	Published    int           `json:"published,omitempty"`
	DeliveredTo  int           `json:"deliveredTo,omitempty"`
}

type PollResponse struct {
	Notifications []Notification `json:"notifications"`
	Timestamp     time.Time      `json:"timestamp"`
}

type ListNotificationsResponse struct {
	Notifications []Notification `json:"notifications"`
	Page          int            `json:"page"`
	PageSize      int            `json:"pageSize"`
	Total         int64          `json:"total"`
}
