package util

import (
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/thetatoken/hubchannel/common"
)

const defaultLogLevel = "warn"

var (
	logLevels   map[string]string
	loggers     = map[string]*log.Entry{}
	loggersLock sync.Mutex
)

func init() {
	customFormatter := new(log.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02 15:04:05"
	log.SetFormatter(customFormatter)
	customFormatter.FullTimestamp = true
}

// parseLogLevelConfig parses "*:error,p2p:debug" into a module -> level map.
func parseLogLevelConfig(raw string) map[string]string {
	ret := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		ret[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	if _, ok := ret["*"]; !ok {
		ret["*"] = defaultLogLevel
	}
	return ret
}

// ResetLogLevels re-reads the per-module levels from config. Loggers handed
// out earlier are updated in place.
func ResetLogLevels() {
	loggersLock.Lock()
	defer loggersLock.Unlock()

	logLevels = parseLogLevelConfig(viper.GetString(common.CfgLogLevels))
	for module, entry := range loggers {
		entry.Logger.SetLevel(levelFor(module))
	}
}

func levelFor(module string) log.Level {
	levelStr, ok := logLevels[module]
	if !ok {
		levelStr = logLevels["*"]
	}
	level, err := log.ParseLevel(levelStr)
	if err != nil {
		level = log.WarnLevel
	}
	return level
}

// GetLoggerForModule returns a logger tagged with the module name, whose
// level follows the "log.levels" config entry for that module.
func GetLoggerForModule(module string) *log.Entry {
	loggersLock.Lock()
	defer loggersLock.Unlock()

	if logLevels == nil {
		logLevels = parseLogLevelConfig(viper.GetString(common.CfgLogLevels))
	}

	logger := log.New()
	logger.Formatter = log.StandardLogger().Formatter
	logger.SetLevel(levelFor(module))

	entry := logger.WithFields(log.Fields{"prefix": module})
	loggers[module] = entry
	return entry
}
