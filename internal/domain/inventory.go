package domain

import "time"

// Inventory module related models

// Controller is a site-local network controller. Each managed site hosts one
// controller through which its switches and access points are reached.
type Controller struct {
	ID              int64     `json:"id,string" form:"id"`                           // Primary key ID
	Name            string    `json:"name" form:"name"`                              // Display name
	SiteName        string    `gorm:"index" json:"site_name" form:"site_name"`       // Controller site name (API path segment)
	SiteDesc        string    `json:"site_desc" form:"site_desc"`                    // Human readable site description
	BaseURL         string    `json:"base_url" form:"base_url"`                      // Controller base URL
	Username        string    `json:"username" form:"username"`                      // Controller admin username
	Password        string    `json:"password" form:"password"`                      // Controller admin password
	VerifySSL       bool      `json:"verify_ssl" form:"verify_ssl"`                  // Verify controller TLS certificate
	Status          string    `json:"status" form:"status"`                          // Controller status (enabled/disabled)
	Latency         int       `json:"latency" form:"latency"`                        // Controller latency in milliseconds
	LastProbeAt     time.Time `json:"last_probe_at"`                                 // Last reachability probe time
	LastProbeResult string    `json:"last_probe_result" form:"last_probe_result"`    // Last probe result (ok/failed)
	LastProbeMsg    string    `json:"last_probe_message" form:"last_probe_message"`  // Last probe message or error
	Tags            string    `json:"tags" form:"tags"`                              // Tags
	Remark          string    `json:"remark" form:"remark"`                          // Remark
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName Specify table name
func (Controller) TableName() string {
	return "net_controller"
}
