package attachment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storedFiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dsheet_attachments_stored_total",
		Help: "Images written to attachment storage",
	})
	storedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dsheet_attachments_stored_bytes_total",
		Help: "Bytes written to attachment storage before normalization",
	})
	resizedFiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dsheet_attachments_resized_total",
		Help: "Images downscaled to the pixel threshold",
	})
	releasedFiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dsheet_attachments_released_total",
		Help: "Release calls completed, including already-absent files",
	})
)
