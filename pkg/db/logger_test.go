package db_test

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/big14way/wagmi-project/pkg/db"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("GormLogrusLogger", func() {
	var (
		base *logrus.Logger
		hook *test.Hook
		gl   *db.GormLogrusLogger
	)

	query := func() (string, int64) { return "SELECT 1", 1 }

	BeforeEach(func() {
		base, hook = test.NewNullLogger()
		base.SetLevel(logrus.DebugLevel)
		gl = db.NewGormLogrusLogger(base)
	})

	It("should log failed queries as errors", func() {
		gl.Trace(context.Background(), time.Now(), query, errors.New("relation does not exist"))

		Expect(hook.LastEntry()).NotTo(BeNil())
		Expect(hook.LastEntry().Level).To(Equal(logrus.ErrorLevel))
		Expect(hook.LastEntry().Data).To(HaveKeyWithValue("sql", "SELECT 1"))
	})

	It("should not treat a missing record as an error", func() {
		gl.Trace(context.Background(), time.Now(), query, gorm.ErrRecordNotFound)

		Expect(hook.LastEntry()).NotTo(BeNil())
		Expect(hook.LastEntry().Level).To(Equal(logrus.DebugLevel))
	})

	It("should flag slow queries", func() {
		gl.Trace(context.Background(), time.Now().Add(-time.Second), query, nil)

		Expect(hook.LastEntry().Level).To(Equal(logrus.WarnLevel))
		Expect(hook.LastEntry().Message).To(Equal("slow query detected"))
	})

	It("should honor the level set through LogMode without changing the original", func() {
		silent := gl.LogMode(logger.Silent)
		silent.Trace(context.Background(), time.Now(), query, errors.New("boom"))
		silent.Error(context.Background(), "boom")
		Expect(hook.AllEntries()).To(BeEmpty())

		gl.Error(context.Background(), "still %s", "logging")
		Expect(hook.LastEntry().Message).To(Equal("still logging"))
	})

	It("should drop info messages at warn level", func() {
		warn := gl.LogMode(logger.Warn)
		warn.Info(context.Background(), "connected")
		Expect(hook.AllEntries()).To(BeEmpty())

		warn.Warn(context.Background(), "careful")
		Expect(hook.LastEntry().Level).To(Equal(logrus.WarnLevel))
	})
})
