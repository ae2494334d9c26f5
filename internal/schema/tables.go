package schema

// Table names of the HR data set.
const (
	TableDepartments    = "departments"
	TableJobs           = "jobs"
	TableHiredEmployees = "hired_employees"
)

// Departments describes the departments table.
func Departments() *TableDescriptor {
	return mustDescriptor(TableDepartments,
		[]Field{{Name: "department", Type: TypeString}},
		"department",
	)
}

// Jobs describes the jobs table.
func Jobs() *TableDescriptor {
	return mustDescriptor(TableJobs,
		[]Field{{Name: "job", Type: TypeString}},
		"job",
	)
}

// HiredEmployees describes the hired_employees table.
func HiredEmployees() *TableDescriptor {
	return mustDescriptor(TableHiredEmployees,
		[]Field{
			{Name: "name", Type: TypeString},
			{Name: "datetime", Type: TypeTimestamp},
			{Name: "department_id", Type: TypeInt},
			{Name: "job_id", Type: TypeInt},
		},
		"name", "datetime", "department_id", "job_id",
	)
}

// DefaultRegistry returns the registry of the three HR tables.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Departments(), Jobs(), HiredEmployees())
	if err != nil {
		panic(err)
	}
	return r
}

func mustDescriptor(name string, fields []Field, required ...string) *TableDescriptor {
	d, err := NewTableDescriptor(name, fields, required...)
	if err != nil {
		panic(err)
	}
	return d
}
