// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package metrics

import (
	"strings"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordMetrics(t *testing.T) {
	g := NewWithT(t)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors()...)

	RecordLicenseRequest(OutcomeTimeout, 100*time.Millisecond)
	RecordLicenseRequest(OutcomeOK, 200*time.Millisecond)
	RecordLicenseRequest(OutcomeOK, 300*time.Millisecond)
	RecordCryptoPeriodProduced()
	SetKeyPoolBatches(7)
	RecordCryptoPeriodLookup(LookupCollected)

	g.Expect(testutil.ToFloat64(licenseRequests.WithLabelValues(OutcomeOK))).To(BeNumerically(">=", 2))
	g.Expect(testutil.ToFloat64(licenseRequests.WithLabelValues(OutcomeTimeout))).To(BeNumerically(">=", 1))
	g.Expect(testutil.ToFloat64(keyPoolBatches)).To(BeEquivalentTo(7))
	g.Expect(testutil.ToFloat64(cryptoPeriodLookups.WithLabelValues(LookupCollected))).To(BeNumerically(">=", 1))

	count, err := testutil.GatherAndCount(reg, "drm_keysource_license_request_duration_seconds")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(count).To(Equal(1))

	err = testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP drm_keysource_key_pool_batches The number of crypto period batches held by the key pool.
# TYPE drm_keysource_key_pool_batches gauge
drm_keysource_key_pool_batches 7
`), "drm_keysource_key_pool_batches")
	g.Expect(err).ToNot(HaveOccurred())
}

func TestMustRegisterMetrics(t *testing.T) {
	g := NewWithT(t)

	g.Expect(MustRegisterMetrics).ToNot(Panic())
	g.Expect(MustRegisterMetrics).To(Panic())

	families, err := Gatherer().Gather()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(families).ToNot(BeEmpty())
}
