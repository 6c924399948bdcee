// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package reporthub

import "fmt"

// Role is a closed enumeration of hub roles. Permissions are expressed as
// capability tags per role and checked through Can; no string-keyed
// permission tables.
type Role int

const (
	RoleCitizen Role = iota
	RoleVolunteer
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleCitizen:
		return "citizen"
	case RoleVolunteer:
		return "volunteer"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// ParseRole maps a role claim to its enumeration value.
func ParseRole(s string) (Role, error) {
	switch s {
	case "citizen":
		return RoleCitizen, nil
	case "volunteer":
		return RoleVolunteer, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return RoleCitizen, fmt.Errorf("unknown role %q", s)
	}
}

// Capability is an action a role may perform.
type Capability string

const (
	CapSubmitReports Capability = "submit_reports"
	CapVerifyReports Capability = "verify_reports"
	CapPurgeReports  Capability = "purge_reports"
	CapViewStats     Capability = "view_stats"
)

var roleCapabilities = map[Role]map[Capability]bool{
	RoleCitizen: {
		CapSubmitReports: true,
	},
	RoleVolunteer: {
		CapSubmitReports: true,
		CapVerifyReports: true,
	},
	RoleAdmin: {
		CapSubmitReports: true,
		CapVerifyReports: true,
		CapPurgeReports:  true,
		CapViewStats:     true,
	},
}

// Can reports whether the role carries the capability.
func (r Role) Can(c Capability) bool {
	return roleCapabilities[r][c]
}
