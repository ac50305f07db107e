package domain

var Tables = []interface{}{
	// System
	&SysConfig{},
	// Inventory
	&Controller{},
	// Schedules
	&CycleSchedule{},
	&RebootSchedule{},
	&ScheduleTemplate{},
	// Jobs
	&JobRun{},
	&AuditLog{},
}
