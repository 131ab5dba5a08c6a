package util

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/thetatoken/hubchannel/common"
)

func TestParseLogLevelConfig(t *testing.T) {
	assert := assert.New(t)

	ret := parseLogLevelConfig("*:error,engine:debug,hub:info")
	assert.Equal(3, len(ret))
	assert.Equal("error", ret["*"])
	assert.Equal("debug", ret["engine"])
	assert.Equal("info", ret["hub"])

	// Should set default level.
	ret2 := parseLogLevelConfig("engine:debug,hub:info")
	assert.Equal(3, len(ret2))
	assert.Equal("warn", ret2["*"])
	assert.Equal("debug", ret2["engine"])
	assert.Equal("info", ret2["hub"])

	// Malformed entries are skipped.
	ret3 := parseLogLevelConfig("engine, ,chain:error")
	assert.Equal(2, len(ret3))
	assert.Equal("error", ret3["chain"])
}

func TestGetLoggerForModule(t *testing.T) {
	assert := assert.New(t)

	logLevels = parseLogLevelConfig("*:error,engine:debug,hub:info")

	assert.Equal(log.DebugLevel, GetLoggerForModule("engine").Logger.Level)
	assert.Equal(log.InfoLevel, GetLoggerForModule("hub").Logger.Level)
	assert.Equal(log.ErrorLevel, GetLoggerForModule("store").Logger.Level)
}

func TestResetLogLevels(t *testing.T) {
	assert := assert.New(t)

	logLevels = parseLogLevelConfig("*:error")
	logger := GetLoggerForModule("chain")
	assert.Equal(log.ErrorLevel, logger.Logger.Level)

	viper.Set(common.CfgLogLevels, "*:error,chain:debug")
	defer viper.Set(common.CfgLogLevels, "*:info")
	ResetLogLevels()
	assert.Equal(log.DebugLevel, logger.Logger.Level)
}
