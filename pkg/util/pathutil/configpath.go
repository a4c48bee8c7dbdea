package pathutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"
)

var log = logging.MustGetLogger("pathutil")

// ErrConfigNotFound is returned by FindConfigPath when no candidate path exists.
var ErrConfigNotFound = errors.New("config not found")

// ConfigLocationType describes a config path's location type.
type ConfigLocationType string

const (
	// WorkingDirLoc is the config file in the working directory.
	WorkingDirLoc = ConfigLocationType("WD")

	// HomeLoc is the config file under the user's home directory.
	HomeLoc = ConfigLocationType("HOME")

	// LocalLoc is the config file under /usr/local.
	LocalLoc = ConfigLocationType("LOCAL")
)

// String implements fmt.Stringer for ConfigLocationType.
func (t ConfigLocationType) String() string { return string(t) }

// Set implements pflag.Value for ConfigLocationType.
func (t *ConfigLocationType) Set(s string) error {
	for _, loc := range AllConfigLocationTypes() {
		if strings.EqualFold(s, string(loc)) {
			*t = loc
			return nil
		}
	}
	return fmt.Errorf("invalid location %q, valid values: %v", s, AllConfigLocationTypes())
}

// Type implements pflag.Value for ConfigLocationType.
func (t ConfigLocationType) Type() string { return "pathutil.ConfigLocationType" }

// AllConfigLocationTypes returns the location types in lookup order.
func AllConfigLocationTypes() []ConfigLocationType {
	return []ConfigLocationType{WorkingDirLoc, HomeLoc, LocalLoc}
}

// ConfigPaths maps location types to config file paths.
type ConfigPaths map[ConfigLocationType]string

// Get returns the path for the given location type.
func (dp ConfigPaths) Get(loc ConfigLocationType) (string, error) {
	path, ok := dp[loc]
	if !ok {
		return "", fmt.Errorf("no config path of type %s", loc)
	}
	return path, nil
}

// ServerDefaults returns the default config paths for tftp-server.
func ServerDefaults() ConfigPaths {
	paths := make(ConfigPaths)
	if wd, err := os.Getwd(); err == nil {
		paths[WorkingDirLoc] = filepath.Join(wd, "tftp-server.json")
	}
	if dir, err := DataDir(); err == nil {
		paths[HomeLoc] = filepath.Join(dir, "tftp-server.json")
	}
	paths[LocalLoc] = filepath.Join(LocalDir, "tftp-server.json")
	return paths
}

// FindConfigPath returns the config path to use, looking in order at:
// args[argsIndex], the env variable, then every default path that exists.
// If argsIndex < 0, args are not looked at.
func FindConfigPath(args []string, argsIndex int, env string, defaults ConfigPaths) (string, error) {
	if argsIndex >= 0 && len(args) > argsIndex {
		path := args[argsIndex]
		log.Infof("using args[%d] as config path: %s", argsIndex, path)
		return path, nil
	}
	if env != "" {
		if path, ok := os.LookupEnv(env); ok && path != "" {
			log.Infof("using $%s as config path: %s", env, path)
			return path, nil
		}
	}
	for i, loc := range AllConfigLocationTypes() {
		path, ok := defaults[loc]
		if !ok {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			log.Debugf("- [%d/%d] '%s' cannot be accessed: %s", i+1, len(defaults), path, err)
			continue
		}
		log.Infof("using fallback config path: %s", path)
		return path, nil
	}
	return "", ErrConfigNotFound
}

// WriteJSONConfig writes conf as indented JSON to output.
// An existing file is only overwritten if replace is set.
func WriteJSONConfig(conf interface{}, output string, replace bool) error {
	raw, err := json.MarshalIndent(conf, "", "\t")
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	if _, err := os.Stat(output); !replace && err == nil {
		return fmt.Errorf("file %s already exists, stopping as 'replace' flag is not set", output)
	}
	if _, err := EnsureDir(filepath.Dir(output)); err != nil {
		return err
	}
	if err := AtomicWriteFile(output, raw); err != nil {
		return err
	}
	log.Infof("Wrote %d bytes to %s", len(raw), output)
	return nil
}
