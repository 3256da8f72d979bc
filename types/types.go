package types

// ---- Common HAL state (retained) ----

type HALState struct {
	Level  string `json:"level"`  // "idle", "ready", "error", "stopped"
	Status string `json:"status"` // short code
	Error  string `json:"error,omitempty"`
	TS     int64  `json:"ts_ms"`
}

// Link is the link/state reported for a capability.
type Link string

const (
	LinkUp       Link = "up"
	LinkDown     Link = "down"
	LinkDegraded Link = "degraded"
)

type CapabilityStatus struct {
	Link  Link   `json:"link"`
	TS    int64  `json:"ts_ms"`
	Error string `json:"error,omitempty"` // errcode string
}

// ---- Capability kinds & info ----

type Kind string

const (
	KindPotentiometer Kind = "potentiometer"
)

// Info envelope each capability exposes (retained).
type Info struct {
	SchemaVersion int    `json:"schema_version"`
	Driver        string `json:"driver"`
	Detail        any    `json:"detail,omitempty"`
}

// ---- Potentiometer capability ----

// PotInfo is published as Info.Detail.
type PotInfo struct {
	Bus      string `json:"bus"`
	Addr     uint16 `json:"addr"`
	Bits     uint8  `json:"bits"`
	Steps    uint16 `json:"steps"`     // 2^bits + 1 positions, B..A
	TotalOhm uint32 `json:"total_ohm"` // R_AB, 0 if unknown
}

// PotValue is published under .../value.
type PotValue struct {
	Wiper uint16 `json:"wiper"`            // raw code
	OhmWB uint32 `json:"ohm_wb,omitempty"` // estimated wiper-to-B, 0 if R_AB unknown
	TS    int64  `json:"ts_ms"`
}

// Controls

type PotSet struct {
	Value uint16 `json:"value"`
}

type PotStep struct {
	Steps uint16 `json:"steps,omitempty"` // 0 => 1
}

type PotSetOhm struct {
	Ohm      uint32 `json:"ohm"`
	TotalOhm uint32 `json:"total_ohm,omitempty"` // 0 => device param
	Bits     uint8  `json:"bits,omitempty"`      // 0 => device param
}

type PotFlag struct {
	Flag string `json:"flag"` // "a" | "b" | "w" | "r0" | "gc"
	On   bool   `json:"on"`
}

type PotTCON struct {
	TCON uint16 `json:"tcon"`
}

type SetRate struct {
	PeriodMS int `json:"period_ms"`
}

// Generic replies
type OKReply struct {
	OK     bool `json:"ok"`
	Result any  `json:"result,omitempty"`
}
type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
