package main

import (
	"github.com/carlmjohnson/versioninfo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "ninjaguard_build_info",
	Help: "Always 1; labelled with the running version",
}, []string{"version"})

var sourceReady = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "ninjaguard_source_ready",
	Help: "1 once the message source is connected",
})

func init() {
	buildInfo.WithLabelValues(versioninfo.Short()).Set(1)
}
