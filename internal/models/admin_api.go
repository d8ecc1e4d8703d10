package models

// AdminReply is the body of every /api response. On failure Ok is false,
// Msg says why and Obj is null.
type AdminReply struct {
	Ok  bool        `json:"status"`
	Msg string      `json:"msg"`
	Obj interface{} `json:"obj"`
}

// Page is one page of a ledger listing, newest payment first. Total counts
// the records matching the filters before paging.
type Page[T any] struct {
	Items []T `json:"data"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"total_pages"`
}
