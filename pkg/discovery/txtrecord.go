package discovery

import (
	"errors"
	"fmt"
	"strings"
)

// Service naming constants.
const (
	// ServiceType is the mDNS service type for instrument endpoints.
	ServiceType = "_vinst-scpi._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// MaxInstanceNameLen bounds the advertised instance name.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	// TXTKeyBench is the bench name the instrument belongs to.
	TXTKeyBench = "bench"

	// TXTKeyInstrument is the instrument name.
	TXTKeyInstrument = "inst"

	// TXTKeyIdentity is the instrument identification string.
	TXTKeyIdentity = "idn"

	// TXTKeyVersion is the protocol version.
	TXTKeyVersion = "ver"
)

// Discovery errors.
var (
	// ErrMissingRequired indicates a TXT record set without a required key.
	ErrMissingRequired = errors.New("missing required TXT record")

	// ErrInvalidTXTRecord indicates a TXT record that could not be parsed.
	ErrInvalidTXTRecord = errors.New("invalid TXT record")

	// ErrNotFound indicates the requested service is not advertised.
	ErrNotFound = errors.New("service not found")
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// InstrumentInfo describes one advertised instrument endpoint.
type InstrumentInfo struct {
	// Bench is the name of the bench publishing the instrument.
	Bench string

	// Instrument is the instrument name, unique within the bench.
	Instrument string

	// Identity is the instrument identification string.
	Identity string

	// Port is the TCP port the endpoint listens on.
	Port uint16

	// Version is the protocol version string (optional).
	Version string
}

// EncodeInstrumentTXT creates TXT records for an instrument endpoint.
func EncodeInstrumentTXT(info *InstrumentInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	txt[TXTKeyBench] = info.Bench
	txt[TXTKeyInstrument] = info.Instrument
	txt[TXTKeyIdentity] = info.Identity

	if info.Version != "" {
		txt[TXTKeyVersion] = info.Version
	}

	return txt
}

// DecodeInstrumentTXT parses TXT records from an instrument advertisement.
func DecodeInstrumentTXT(txt TXTRecordMap) (*InstrumentInfo, error) {
	info := &InstrumentInfo{}

	var ok bool
	info.Bench, ok = txt[TXTKeyBench]
	if !ok || info.Bench == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyBench)
	}

	info.Instrument, ok = txt[TXTKeyInstrument]
	if !ok || info.Instrument == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyInstrument)
	}

	info.Identity, ok = txt[TXTKeyIdentity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyIdentity)
	}

	info.Version = txt[TXTKeyVersion]

	return info, nil
}

// TXTRecordsToStrings converts a TXT record map to "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXT record map.
// Entries without "=" are treated as boolean flags with an empty value.
func StringsToTXTRecords(records []string) TXTRecordMap {
	txt := make(TXTRecordMap, len(records))
	for _, record := range records {
		key, value, _ := strings.Cut(record, "=")
		if key == "" {
			continue
		}
		txt[key] = value
	}
	return txt
}
