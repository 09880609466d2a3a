package uds

import "gopkg.in/ini.v1"

// TimingConfig carries the construction-time defaults named in spec.md §6
// "Defaults". Every field is overridable via functional options; this
// struct additionally may be loaded from an INI file with
// [LoadTimingConfig], following the teacher's pkg/config package, which
// parses CANopen EDS sections with the same library
// (gopkg.in/ini.v1) for NMT/heartbeat/PDO/sync/time parameters.
type TimingConfig struct {
	P2Millis              uint16
	P2StarMillis          uint16
	S3Millis              uint32
	BootDelayMillis       uint32
	AuthFailDelayMillis   uint32
	BlockLengthDefault    uint32
}

// DefaultServerTimingConfig returns the server-side defaults of spec.md §6.
func DefaultServerTimingConfig() TimingConfig {
	return TimingConfig{
		P2Millis:           DefaultP2ServerMillis,
		P2StarMillis:       DefaultP2StarServerMillis,
		S3Millis:           DefaultS3Millis,
		BootDelayMillis:    DefaultBootDelayMillis,
		AuthFailDelayMillis: DefaultAuthFailDelayMillis,
		BlockLengthDefault: DefaultTransportMTU,
	}
}

// DefaultClientTimingConfig returns the client-side defaults of spec.md §6.
func DefaultClientTimingConfig() TimingConfig {
	return TimingConfig{
		P2Millis:     DefaultP2ClientMillis,
		P2StarMillis: DefaultP2StarClientMillis,
	}
}

// LoadTimingConfig parses a sectioned INI file, e.g.:
//
//	[server]
//	p2_ms = 50
//	p2_star_ms = 2000
//	s3_ms = 3000
//	boot_delay_ms = 1000
//	auth_fail_delay_ms = 1000
//	block_length_default = 4095
//
//	[client]
//	p2_ms = 150
//	p2_star_ms = 1500
//
// section is "server" or "client"; start is the matching default
// TimingConfig, so a file only needs to specify the keys it overrides.
func LoadTimingConfig(path string, section string, start TimingConfig) (TimingConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return start, err
	}
	sec, err := cfg.GetSection(section)
	if err != nil {
		// Section absent: keep the supplied defaults, same as the
		// teacher's per-section config readers tolerate a missing
		// optional section.
		return start, nil
	}

	result := start
	if key, err := sec.GetKey("p2_ms"); err == nil {
		v, err := key.Uint()
		if err == nil {
			result.P2Millis = uint16(v)
		}
	}
	if key, err := sec.GetKey("p2_star_ms"); err == nil {
		v, err := key.Uint()
		if err == nil {
			result.P2StarMillis = uint16(v)
		}
	}
	if key, err := sec.GetKey("s3_ms"); err == nil {
		v, err := key.Uint()
		if err == nil {
			result.S3Millis = uint32(v)
		}
	}
	if key, err := sec.GetKey("boot_delay_ms"); err == nil {
		v, err := key.Uint()
		if err == nil {
			result.BootDelayMillis = uint32(v)
		}
	}
	if key, err := sec.GetKey("auth_fail_delay_ms"); err == nil {
		v, err := key.Uint()
		if err == nil {
			result.AuthFailDelayMillis = uint32(v)
		}
	}
	if key, err := sec.GetKey("block_length_default"); err == nil {
		v, err := key.Uint()
		if err == nil {
			result.BlockLengthDefault = uint32(v)
		}
	}
	return result, nil
}
