package logger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// LoggerTestSuite logger 测试套件.
type LoggerTestSuite struct {
	suite.Suite
	tmpDir string
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTestSuite))
}

func (s *LoggerTestSuite) SetupTest() {
	s.tmpDir = s.T().TempDir()
}

func (s *LoggerTestSuite) TestNewLogger_NilConfig() {
	log, err := NewLogger(nil)
	s.Error(err)
	s.Nil(log)
}

func (s *LoggerTestSuite) TestNewLogger_DefaultConfig() {
	log, err := NewLogger(DefaultConfig())
	s.NoError(err)
	s.NotNil(log)
	defer log.Close()
}

func (s *LoggerTestSuite) TestNewLogger_DevConfig() {
	log, err := NewLogger(NewDevConfig())
	s.NoError(err)
	s.NotNil(log)
	defer log.Close()
}

func (s *LoggerTestSuite) TestNewLogger_InvalidConfig() {
	cases := []struct {
		name   string
		config *Config
		field  string
	}{
		{"level", &Config{Level: "verbose"}, "level"},
		{"format", &Config{Format: "xml"}, "format"},
		{"output", &Config{Output: "syslog"}, "output"},
		{"file without dir", &Config{Output: OutputFile}, "log_dir"},
		{"type", &Config{Type: "logrus"}, "type"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			log, err := NewLogger(tc.config)
			s.Nil(log)
			var cfgErr *ConfigError
			s.Require().True(errors.As(err, &cfgErr))
			s.Equal(tc.field, cfgErr.Field)
		})
	}
}

func (s *LoggerTestSuite) TestApplyDefaults() {
	config := &Config{}
	config.ApplyDefaults()
	s.Equal(TypeZap, config.Type)
	s.Equal(LevelInfo, config.Level)
	s.Equal(FormatJSON, config.Format)
	s.Equal(OutputConsole, config.Output)
	s.Equal("cronjob", config.ServiceName)
	s.Equal(TimeFormatDateTime, config.TimeFormat)
}

func (s *LoggerTestSuite) TestFileOutput() {
	config := &Config{
		ServiceName: "nightly",
		Output:      OutputFile,
		LogDir:      s.tmpDir,
		TimeFormat:  TimeFormatRFC3339,
	}
	log, err := NewLogger(config)
	s.Require().NoError(err)

	ctx := ContextWithJobID(context.Background(), "job-1")
	log.WithContext(ctx).With(String("job", "report"), Duration("took", time.Second)).Info("tick done")
	s.Require().NoError(log.Close())

	data, err := os.ReadFile(filepath.Join(s.tmpDir, "nightly.log"))
	s.Require().NoError(err)
	s.Contains(string(data), `"msg":"tick done"`)
	s.Contains(string(data), `"jobId":"job-1"`)
	s.Contains(string(data), `"job":"report"`)
	s.Contains(string(data), `"service":"nightly"`)
}

func (s *LoggerTestSuite) TestLevelFiltering() {
	log, err := NewLogger(&Config{
		Level:  LevelWarn,
		Output: OutputFile,
		LogDir: s.tmpDir,
	})
	s.Require().NoError(err)

	log.Info("hidden")
	log.Warnf("shown %d", 1)
	s.Require().NoError(log.Close())

	data, err := os.ReadFile(filepath.Join(s.tmpDir, "cronjob.log"))
	s.Require().NoError(err)
	s.NotContains(string(data), "hidden")
	s.Contains(string(data), "shown 1")
}

func (s *LoggerTestSuite) TestWithContext_NoValues() {
	log := NewNop()
	s.Same(log, log.WithContext(context.Background()))
	s.Same(log, log.WithContext(nil)) //nolint:staticcheck
}

func (s *LoggerTestSuite) TestFieldHelpers() {
	err := errors.New("boom")
	s.Equal(Field{Key: "error", Value: err}, Err(err))
	s.Equal(Field{Key: "n", Value: 3}, Int("n", 3))
	s.Equal(Field{Key: "ok", Value: true}, Bool("ok", true))
	s.Equal(Field{Key: "v", Value: []int{1}}, Any("v", []int{1}))
}

func (s *LoggerTestSuite) TestMustNewLogger_Panics() {
	s.Panics(func() { MustNewLogger(&Config{Level: "bad"}) })
}
