package esim

import (
	"bytes"
	"strings"
)

// Package is a provider offer for a location. Values are treated as
// immutable once fetched.
type Package struct {
	PackageCode  string `json:"packageCode"`
	Slug         string `json:"slug,omitempty"`
	Name         string `json:"name"`
	Price        int64  `json:"price"`
	CurrencyCode string `json:"currencyCode,omitempty"`
	Volume       int64  `json:"volume"`
	Duration     int    `json:"duration"`
	DurationUnit string `json:"durationUnit"`
	Location     string `json:"location,omitempty"`
	Description  string `json:"description,omitempty"`
}

// Profile is a provisioned eSIM belonging to an order.
type Profile struct {
	ICCID          string `json:"iccid"`
	ActivationCode string `json:"ac"`
	QRCodeURL      string `json:"qrCodeUrl"`
	ESIMStatus     string `json:"esimStatus,omitempty"`
	SMDPStatus     string `json:"smdpStatus,omitempty"`
	ExpiredTime    string `json:"expiredTime,omitempty"`
	TotalVolume    int64  `json:"totalVolume,omitempty"`
	OrderUsage     int64  `json:"orderUsage,omitempty"`
}

type packageListRequest struct {
	LocationCode string `json:"locationCode"`
	Type         string `json:"type"`
	PackageCode  string `json:"packageCode"`
	Slug         string `json:"slug"`
	ICCID        string `json:"iccid"`
}

type orderLine struct {
	PackageCode string `json:"packageCode"`
	Count       int    `json:"count"`
	Price       int64  `json:"price"`
}

type orderRequest struct {
	TransactionID   string      `json:"transactionId"`
	Amount          int64       `json:"amount"`
	PackageInfoList []orderLine `json:"packageInfoList"`
}

type pager struct {
	PageNum  int `json:"pageNum"`
	PageSize int `json:"pageSize"`
}

type queryRequest struct {
	OrderNo string `json:"orderNo"`
	ICCID   string `json:"iccid"`
	Pager   pager  `json:"pager"`
}

// envelope is the uniform response wrapper of every endpoint.
type envelope[T any] struct {
	Success   bool      `json:"success"`
	ErrorCode errorCode `json:"errorCode"`
	ErrorMsg  string    `json:"errorMsg"`
	Obj       *T        `json:"obj"`
}

type packageListObj struct {
	PackageList []Package `json:"packageList"`
}

type orderObj struct {
	OrderNo string `json:"orderNo"`
}

type queryObj struct {
	ESIMList []Profile `json:"esimList"`
}

// errorCode accepts both string and numeric codes.
type errorCode string

func (c *errorCode) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	*c = errorCode(strings.Trim(string(b), `"`))
	return nil
}
