// Package notify delivers detected config changes to AWS services and the
// local filesystem.
package notify

import "github.com/vaibhav2408/config-manager/internal/detector"

var (
	_ detector.Notifier = (*CloudWatch)(nil)
	_ detector.Notifier = (*Lambda)(nil)
	_ detector.Notifier = (*S3Exporter)(nil)
	_ detector.Notifier = (*FileExporter)(nil)
)
