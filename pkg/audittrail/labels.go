package audittrail

// FieldLabels maps entity type → raw field key → human label.
type FieldLabels map[string]map[string]string

// DefaultFieldLabels returns the labels shipped with the console.
func DefaultFieldLabels() FieldLabels {
	return FieldLabels{
		"Interview": {
			"accountManagerId": "Account Manager",
			"interviewerId":    "Interviewer",
			"clientId":         "Client",
			"hubId":            "Hub",
			"zoneId":           "Zone",
			"status":           "Status",
			"scheduledAt":      "Scheduled At",
			"result":           "Result",
			"notes":            "Notes",
		},
		"Driver": {
			"fullName":       "Full Name",
			"phone":          "Phone",
			"nationalId":     "National ID",
			"licenseNumber":  "License Number",
			"licenseExpiry":  "License Expiry",
			"clientId":       "Client",
			"hubId":          "Hub",
			"zoneId":         "Zone",
			"status":         "Status",
			"vehicleType":    "Vehicle Type",
			"vehiclePlate":   "Vehicle Plate",
			"joinDate":       "Join Date",
			"terminatedAt":   "Terminated At",
			"terminationWhy": "Termination Reason",
		},
		"Client": {
			"name":             "Name",
			"accountManagerId": "Account Manager",
			"contactEmail":     "Contact Email",
			"contactPhone":     "Contact Phone",
			"status":           "Status",
		},
		"Contract": {
			"clientId":         "Client",
			"accountManagerId": "Account Manager",
			"startDate":        "Start Date",
			"endDate":          "End Date",
			"ratePerOrder":     "Rate per Order",
			"monthlyFee":       "Monthly Fee",
			"headcount":        "Headcount",
			"status":           "Status",
		},
		"Attendance": {
			"driverId": "Driver",
			"hubId":    "Hub",
			"zoneId":   "Zone",
			"date":     "Date",
			"checkIn":  "Check In",
			"checkOut": "Check Out",
			"status":   "Status",
		},
		"Hub": {
			"name":   "Name",
			"zoneId": "Zone",
			"city":   "City",
		},
		"Zone": {
			"name": "Name",
			"city": "City",
		},
		"InventoryItem": {
			"name":     "Name",
			"quantity": "Quantity",
			"hubId":    "Hub",
		},
	}
}

// Label translates a field for display, falling back to the raw key. Lookups
// are case-sensitive on both entity and field.
func (l FieldLabels) Label(entity, field string) string {
	if label, ok := l[entity][field]; ok && label != "" {
		return label
	}
	return field
}

// Merge returns a new table with overlay entries layered on top of l.
func (l FieldLabels) Merge(overlay FieldLabels) FieldLabels {
	merged := make(FieldLabels, len(l)+len(overlay))
	for _, src := range []FieldLabels{l, overlay} {
		for entity, fields := range src {
			dst, ok := merged[entity]
			if !ok {
				dst = make(map[string]string, len(fields))
				merged[entity] = dst
			}
			for field, label := range fields {
				dst[field] = label
			}
		}
	}
	return merged
}
