package domain

// ServiceStatus is one entry of the detailed health report.
type ServiceStatus struct {
	Service string `json:"service"`
	Status  string `json:"status"`
}

const (
	StatusOK = "OK"
	StatusKO = "KO"
)
