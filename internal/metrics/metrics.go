// Package metrics defines netzd's process-wide VictoriaMetrics counters,
// grouped the way pkg/api/api0/metrics.go groups API counters: one struct
// field per named outcome, registered once behind a sync.Once and checked
// for completeness via reflection.
package metrics

import (
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/VictoriaMetrics/metrics"
)

type metricsObj struct {
	set *metrics.Set

	prudp_rx_packets_total struct {
		syn         *metrics.Counter
		connect     *metrics.Counter
		data        *metrics.Counter
		disconnect  *metrics.Counter
		ping        *metrics.Counter
		invalid     *metrics.Counter
		bad_sig     *metrics.Counter
	}
	prudp_rx_bytes_total  *metrics.Counter
	prudp_tx_packets_total *metrics.Counter
	prudp_tx_bytes_total   *metrics.Counter

	prudp_connections_active *metrics.Counter
	prudp_connections_closed_total struct {
		idle_timeout    *metrics.Counter
		bad_sig_limit   *metrics.Counter
		disconnect      *metrics.Counter
	}

	rmc_dispatch_total struct {
		success            *metrics.Counter
		unknown_protocol   *metrics.Counter
		unknown_method     *metrics.Counter
		access_denied      *metrics.Counter
		duplicate_call     *metrics.Counter
		handler_error      *metrics.Counter
	}
	rmc_dispatch_duration_seconds *metrics.Histogram

	ticket_issue_total struct {
		success  *metrics.Counter
		denied   *metrics.Counter
	}
	ticket_validate_total struct {
		success *metrics.Counter
		denied  *metrics.Counter
		expired *metrics.Counter
	}
}

var (
	once sync.Once
	obj  metricsObj
)

// M returns the process-wide metrics object, initializing it on first use.
func M() *metricsObj {
	once.Do(func() {
		obj.set = metrics.NewSet()

		obj.prudp_rx_packets_total.syn = obj.set.NewCounter(`netzd_prudp_rx_packets_total{type="syn"}`)
		obj.prudp_rx_packets_total.connect = obj.set.NewCounter(`netzd_prudp_rx_packets_total{type="connect"}`)
		obj.prudp_rx_packets_total.data = obj.set.NewCounter(`netzd_prudp_rx_packets_total{type="data"}`)
		obj.prudp_rx_packets_total.disconnect = obj.set.NewCounter(`netzd_prudp_rx_packets_total{type="disconnect"}`)
		obj.prudp_rx_packets_total.ping = obj.set.NewCounter(`netzd_prudp_rx_packets_total{type="ping"}`)
		obj.prudp_rx_packets_total.invalid = obj.set.NewCounter(`netzd_prudp_rx_packets_total{type="invalid"}`)
		obj.prudp_rx_packets_total.bad_sig = obj.set.NewCounter(`netzd_prudp_rx_packets_total{type="bad_sig"}`)
		obj.prudp_rx_bytes_total = obj.set.NewCounter(`netzd_prudp_rx_bytes_total`)
		obj.prudp_tx_packets_total = obj.set.NewCounter(`netzd_prudp_tx_packets_total`)
		obj.prudp_tx_bytes_total = obj.set.NewCounter(`netzd_prudp_tx_bytes_total`)

		obj.prudp_connections_active = obj.set.NewCounter(`netzd_prudp_connections_active`)
		obj.prudp_connections_closed_total.idle_timeout = obj.set.NewCounter(`netzd_prudp_connections_closed_total{reason="idle_timeout"}`)
		obj.prudp_connections_closed_total.bad_sig_limit = obj.set.NewCounter(`netzd_prudp_connections_closed_total{reason="bad_sig_limit"}`)
		obj.prudp_connections_closed_total.disconnect = obj.set.NewCounter(`netzd_prudp_connections_closed_total{reason="disconnect"}`)

		obj.rmc_dispatch_total.success = obj.set.NewCounter(`netzd_rmc_dispatch_total{result="success"}`)
		obj.rmc_dispatch_total.unknown_protocol = obj.set.NewCounter(`netzd_rmc_dispatch_total{result="unknown_protocol"}`)
		obj.rmc_dispatch_total.unknown_method = obj.set.NewCounter(`netzd_rmc_dispatch_total{result="unknown_method"}`)
		obj.rmc_dispatch_total.access_denied = obj.set.NewCounter(`netzd_rmc_dispatch_total{result="access_denied"}`)
		obj.rmc_dispatch_total.duplicate_call = obj.set.NewCounter(`netzd_rmc_dispatch_total{result="duplicate_call"}`)
		obj.rmc_dispatch_total.handler_error = obj.set.NewCounter(`netzd_rmc_dispatch_total{result="handler_error"}`)
		obj.rmc_dispatch_duration_seconds = obj.set.NewHistogram(`netzd_rmc_dispatch_duration_seconds`)

		obj.ticket_issue_total.success = obj.set.NewCounter(`netzd_ticket_issue_total{result="success"}`)
		obj.ticket_issue_total.denied = obj.set.NewCounter(`netzd_ticket_issue_total{result="denied"}`)
		obj.ticket_validate_total.success = obj.set.NewCounter(`netzd_ticket_validate_total{result="success"}`)
		obj.ticket_validate_total.denied = obj.set.NewCounter(`netzd_ticket_validate_total{result="denied"}`)
		obj.ticket_validate_total.expired = obj.set.NewCounter(`netzd_ticket_validate_total{result="expired"}`)

		checkInitialized(reflect.ValueOf(obj), "metrics")
	})
	return &obj
}

func checkInitialized(v reflect.Value, name string) {
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			checkInitialized(v.Field(i), name+"."+v.Type().Field(i).Name)
		}
	case reflect.Pointer:
		if v.IsNil() {
			panic(fmt.Errorf("metrics: unexpected nil %q", name))
		}
	default:
		panic(fmt.Errorf("metrics: unexpected kind %s for %q", v.Kind(), name))
	}
}

// RecordRxPacket tallies one received PRUDP datagram by kind.
func (m *metricsObj) RecordRxPacket(kind string, n int) {
	switch kind {
	case "syn":
		m.prudp_rx_packets_total.syn.Inc()
	case "connect":
		m.prudp_rx_packets_total.connect.Inc()
	case "data":
		m.prudp_rx_packets_total.data.Inc()
	case "disconnect":
		m.prudp_rx_packets_total.disconnect.Inc()
	case "ping":
		m.prudp_rx_packets_total.ping.Inc()
	case "invalid":
		m.prudp_rx_packets_total.invalid.Inc()
	case "bad_sig":
		m.prudp_rx_packets_total.bad_sig.Inc()
	}
	m.prudp_rx_bytes_total.Add(n)
}

// RecordTxPacket tallies one sent PRUDP datagram.
func (m *metricsObj) RecordTxPacket(n int) {
	m.prudp_tx_packets_total.Inc()
	m.prudp_tx_bytes_total.Add(n)
}

// ConnectionOpened increments the active-connection gauge.
func (m *metricsObj) ConnectionOpened() { m.prudp_connections_active.Inc() }

// ConnectionClosed decrements the active-connection gauge and tallies why.
func (m *metricsObj) ConnectionClosed(reason string) {
	m.prudp_connections_active.Dec()
	switch reason {
	case "idle_timeout":
		m.prudp_connections_closed_total.idle_timeout.Inc()
	case "bad_sig_limit":
		m.prudp_connections_closed_total.bad_sig_limit.Inc()
	case "disconnect":
		m.prudp_connections_closed_total.disconnect.Inc()
	}
}

// RecordDispatch tallies one RMC dispatch outcome and its duration.
func (m *metricsObj) RecordDispatch(result string, durationSeconds float64) {
	switch result {
	case "success":
		m.rmc_dispatch_total.success.Inc()
	case "unknown_protocol":
		m.rmc_dispatch_total.unknown_protocol.Inc()
	case "unknown_method":
		m.rmc_dispatch_total.unknown_method.Inc()
	case "access_denied":
		m.rmc_dispatch_total.access_denied.Inc()
	case "duplicate_call":
		m.rmc_dispatch_total.duplicate_call.Inc()
	default:
		m.rmc_dispatch_total.handler_error.Inc()
	}
	m.rmc_dispatch_duration_seconds.Update(durationSeconds)
}

// RecordTicketIssue tallies one ticket issuance attempt.
func (m *metricsObj) RecordTicketIssue(ok bool) {
	if ok {
		m.ticket_issue_total.success.Inc()
	} else {
		m.ticket_issue_total.denied.Inc()
	}
}

// RecordTicketValidate tallies one ticket validation attempt.
func (m *metricsObj) RecordTicketValidate(result string) {
	switch result {
	case "success":
		m.ticket_validate_total.success.Inc()
	case "expired":
		m.ticket_validate_total.expired.Inc()
	default:
		m.ticket_validate_total.denied.Inc()
	}
}

// WritePrometheus writes process and netzd metrics in Prometheus text
// format.
func WritePrometheus(w io.Writer) {
	metrics.WriteProcessMetrics(w)
	M().set.WritePrometheus(w)
}
