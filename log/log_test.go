package log_test

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"github.com/dudk/gmf/log"
)

func TestComponent(t *testing.T) {
	l, hook := test.NewNullLogger()
	log.Component(l, "task", "decoder").Info("started")
	assert.Equal(t, 1, len(hook.Entries))
	assert.Equal(t, "decoder", hook.LastEntry().Data["task"])
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
}

func TestSilent(t *testing.T) {
	assert.Equal(t, logrus.PanicLevel, log.Silent().GetLevel())
	assert.NotNil(t, log.GetLogger())
}
