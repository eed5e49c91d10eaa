package main

import (
	"encoding/json"
	"os"
	"strconv"
)

// TolerantBool unmarshals from a JSON bool, string ("true"/"1"/...), or
// number, since hand-edited config files in the wild mix all three for a
// yes/no field.
type TolerantBool bool

func (b *TolerantBool) UnmarshalJSON(data []byte) error {
	var direct bool
	if err := json.Unmarshal(data, &direct); err == nil {
		*b = TolerantBool(direct)
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		parsed, err := strconv.ParseBool(str)
		if err != nil {
			return err
		}
		*b = TolerantBool(parsed)
		return nil
	}

	var numInt int64
	if err := json.Unmarshal(data, &numInt); err == nil {
		*b = TolerantBool(numInt != 0)
		return nil
	}

	var numFloat float64
	if err := json.Unmarshal(data, &numFloat); err == nil {
		*b = TolerantBool(numFloat != 0)
		return nil
	}

	return json.Unmarshal(data, (*bool)(b))
}

func (b TolerantBool) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(b))
}

// config holds defaults read from a patchcore config file, so a CLI
// invocation only needs to override what differs from the usual setup.
type config struct {
	VerifyConcurrency  int          `json:"verifyConcurrency"`
	InstallConcurrency int          `json:"installConcurrency"`
	MetricsAddr        string       `json:"metricsAddr"`
	Debug              TolerantBool `json:"debug"`
}

// loadConfig reads a JSON config file at path. A missing file is not an
// error - the CLI's own flag defaults apply instead.
func loadConfig(path string) (config, error) {
	var cfg config
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyConfigDefaults fills in zero-valued fields of whichever subcommand
// was selected from cfg, so a config file only needs to set the defaults
// a particular deployment actually cares about; explicit flags always win
// since go-arg has already parsed them into args by the time this runs.
func applyConfigDefaults(args *rootArgs, cfg config) {
	switch {
	case args.Verify != nil:
		if args.Verify.Concurrency == 0 {
			args.Verify.Concurrency = cfg.VerifyConcurrency
		}
	case args.Install != nil:
		if args.Install.VerifyConc == 0 {
			args.Install.VerifyConc = cfg.VerifyConcurrency
		}
		if args.Install.InstallConc == 0 {
			args.Install.InstallConc = cfg.InstallConcurrency
		}
		if args.Install.MetricsAddr == "" {
			args.Install.MetricsAddr = cfg.MetricsAddr
		}
	}
}
