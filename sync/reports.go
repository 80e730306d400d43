package sync

// Report is one report selection: the property to query and the ordered
// dimension and metric field names. Immutable for the duration of a sync
// pass.
type Report struct {
	Name       string
	ID         string
	PropertyID string
	AccountID  string
	Dimensions []string
	Metrics    []string
}

// ReportDefinition names a report and the fields it queries, before a
// property is bound to it.
type ReportDefinition struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Dimensions []string `json:"dimensions"`
	Metrics    []string `json:"metrics"`
}

// PremadeReports are the report definitions offered when a config supplies
// none of its own.
var PremadeReports = []ReportDefinition{
	{
		ID:   ToSnakeCase("First User Medium Report"),
		Name: "First User Medium Report",
		Metrics: []string{
			"newUsers",
			"engagedSessions",
			"engagementRate",
			"eventCount",
			"conversions",
			"totalRevenue",
			"totalUsers",
			"userEngagementDuration",
		},
		Dimensions: []string{
			"date",
			"firstUserMedium",
		},
	},
	{
		ID:   ToSnakeCase("First User Source Report"),
		Name: "First User Source Report",
		Metrics: []string{
			"newUsers",
			"engagedSessions",
			"engagementRate",
			"eventCount",
			"conversions",
			"totalRevenue",
			"totalUsers",
			"userEngagementDuration",
		},
		Dimensions: []string{
			"date",
			"firstUserSource",
		},
	},
}
