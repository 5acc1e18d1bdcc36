package version

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Заполняются при сборке:
//
//	go build -ldflags "-X github.com/vladislavdragonenkov/orcamentos/internal/version.version=v1.2.0 ..."
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Version возвращает номер версии для health-ответа.
func Version() string { return version }

// String печатается командой `quote-service version`.
func String() string {
	return fmt.Sprintf("quote-service %s (commit %s, built %s)", version, commit, date)
}

// Fields — поля сборки для стартовой записи в лог.
func Fields() log.Fields {
	return log.Fields{"version": version, "commit": commit, "built": date}
}
