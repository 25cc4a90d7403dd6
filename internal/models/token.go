package models

import "time"

// HolderRecord is one of the largest token accounts for a mint. Owner is nil
// when the parsed account owner could not be resolved.
type HolderRecord struct {
	Address        string  `json:"address"`
	Owner          *string `json:"owner"`
	Amount         string  `json:"amount"`
	Decimals       int     `json:"decimals"`
	UIAmount       float64 `json:"uiAmount"`
	UIAmountString string  `json:"uiAmountString"`
}

// TokenSnapshot is a point-in-time view of supply and holder concentration.
// It is never persisted or cached.
type TokenSnapshot struct {
	Mint           string         `json:"mint"`
	Decimals       int            `json:"decimals"`
	Supply         float64        `json:"supply"`
	RawAmount      string         `json:"rawAmount"`
	UIAmountString string         `json:"uiAmountString"`
	LargestHolders []HolderRecord `json:"largestHolders"`
	LastUpdated    time.Time      `json:"lastUpdated"`
}
