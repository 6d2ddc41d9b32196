package bridge

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// num decodes a JSON number that the bridge may send as a string.
type num float64

func (n *num) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*n = num(f)
	return nil
}

// unixTime decodes seconds since the epoch or an RFC 3339 string.
type unixTime time.Time

func (u *unixTime) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*u = unixTime(time.Unix(int64(v), 0).UTC())
	case string:
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			*u = unixTime(time.Unix(sec, 0).UTC())
			return nil
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return err
		}
		*u = unixTime(t.UTC())
	}
	return nil
}

type accountResponse struct {
	Balance     num `json:"balance"`
	Equity      num `json:"equity"`
	Profit      num `json:"profit"`
	MarginLevel num `json:"margin_level"`
	FreeMargin  num `json:"free_margin"`
}

type positionResponse struct {
	Ticket    int64  `json:"ticket"`
	Symbol    string `json:"symbol"`
	Type      string `json:"type"`
	Volume    num    `json:"volume"`
	OpenPrice num    `json:"open_price"`
	SL        num    `json:"sl"`
	TP        num    `json:"tp"`
	Profit    num    `json:"profit"`
}

type symbolResponse struct {
	Name       string `json:"name"`
	Bid        num    `json:"bid"`
	Ask        num    `json:"ask"`
	Point      num    `json:"point"`
	Digits     int    `json:"digits"`
	StopsLevel num    `json:"stops_level"`
}

type candleResponse struct {
	Time   unixTime `json:"time"`
	Open   num      `json:"open"`
	High   num      `json:"high"`
	Low    num      `json:"low"`
	Close  num      `json:"close"`
	Volume num      `json:"volume"`
}

type orderRequest struct {
	Symbol  string  `json:"symbol"`
	Side    string  `json:"side"`
	Volume  float64 `json:"volume"`
	SL      float64 `json:"sl"`
	TP      float64 `json:"tp"`
	Comment string  `json:"comment,omitempty"`
	Magic   int64   `json:"magic,omitempty"`
}

type orderResponse struct {
	Retcode int    `json:"retcode"`
	Order   int64  `json:"order"`
	Price   num    `json:"price"`
	Comment string `json:"comment"`
}

type closeRequest struct {
	Ticket int64   `json:"ticket"`
	Symbol string  `json:"symbol"`
	Volume float64 `json:"volume"`
	Side   string  `json:"side"`
	Magic  int64   `json:"magic,omitempty"`
}

type modifyRequest struct {
	Ticket int64   `json:"ticket"`
	SL     float64 `json:"sl"`
	TP     float64 `json:"tp"`
}

type okResponse struct {
	Success bool   `json:"success"`
	Retcode int    `json:"retcode"`
	Message string `json:"message"`
}

type dealResponse struct {
	Ticket int64    `json:"ticket"`
	Symbol string   `json:"symbol"`
	Type   string   `json:"type"`
	Volume num      `json:"volume"`
	Price  num      `json:"price"`
	Profit num      `json:"profit"`
	Time   unixTime `json:"time"`
}
