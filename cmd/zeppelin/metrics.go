package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var configsLoaded = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "zeppelin_guild_configs_loaded",
	Help: "Number of guilds with a loaded automod config",
})
