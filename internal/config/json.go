package config

import (
	"encoding/json"
	"os"

	"github.com/mindjig/trace-core/internal/flagx"
	"github.com/mindjig/trace-core/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "2s"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config (which uses time.Duration).
type JsonConfig struct {
	DataDir             string         `json:"data_dir"`
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	DeviceID            string         `json:"device_id"`
	AttachmentQuality   *int           `json:"attachment_quality"`
	AutosaveDebounce    timex.Duration `json:"autosave_debounce"`
	AutosaveMaxWait     timex.Duration `json:"autosave_max_wait"`
	ConflictGraceWindow timex.Duration `json:"conflict_grace_window"`
	SyncInterval        timex.Duration `json:"sync_interval"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// The file path comes from the -c/-config flags via flagx.ConfigPathFlag;
// with no flag present nothing is loaded. Only fields present in the file
// override the current Config values. Intended usage is: defaults ->
// parseJson -> parseFlags, where later stages override earlier ones.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigPathFlag()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	applyJson(cfg, &jc)
}

func applyJson(cfg *Config, jc *JsonConfig) {
	if jc.DataDir != "" {
		cfg.DataDir = jc.DataDir
	}
	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.DeviceID != "" {
		cfg.DeviceID = jc.DeviceID
	}
	if jc.AttachmentQuality != nil {
		cfg.AttachmentQuality = *jc.AttachmentQuality
	}
	if jc.AutosaveDebounce.Duration != 0 {
		cfg.AutosaveDebounce = jc.AutosaveDebounce.Duration
	}
	if jc.AutosaveMaxWait.Duration != 0 {
		cfg.AutosaveMaxWait = jc.AutosaveMaxWait.Duration
	}
	if jc.ConflictGraceWindow.Duration != 0 {
		cfg.ConflictGraceWindow = jc.ConflictGraceWindow.Duration
	}
	if jc.SyncInterval.Duration != 0 {
		cfg.SyncInterval = jc.SyncInterval.Duration
	}
	if jc.OnlineCheckInterval.Duration != 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
}
