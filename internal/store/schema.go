package store

// Schema contains the SQL definitions for the HR tables and the identifier
// sequences. The column lists must agree with the schema registry; the store
// tests check that they do.

// CreateDepartmentsTableSQL creates the departments table.
const CreateDepartmentsTableSQL = `
CREATE TABLE IF NOT EXISTS departments (
    id INTEGER PRIMARY KEY,
    department TEXT NOT NULL
)`

// CreateJobsTableSQL creates the jobs table.
const CreateJobsTableSQL = `
CREATE TABLE IF NOT EXISTS jobs (
    id INTEGER PRIMARY KEY,
    job TEXT NOT NULL
)`

// CreateHiredEmployeesTableSQL creates the hired_employees table.
// datetime is declared TIMESTAMP so the driver round-trips it as time.Time.
const CreateHiredEmployeesTableSQL = `
CREATE TABLE IF NOT EXISTS hired_employees (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    datetime TIMESTAMP NOT NULL,
    department_id INTEGER NOT NULL REFERENCES departments(id),
    job_id INTEGER NOT NULL REFERENCES jobs(id)
)`

// CreateIDSequencesTableSQL creates the per-table identifier sequences.
// last_value is the highest identifier handed out (or restored) for the table.
const CreateIDSequencesTableSQL = `
CREATE TABLE IF NOT EXISTS id_sequences (
    table_name TEXT PRIMARY KEY,
    last_value INTEGER NOT NULL
)`

// CreateIndexesSQL creates indexes used by the reporting queries.
var CreateIndexesSQL = []string{
	// Year filter on hires
	`CREATE INDEX IF NOT EXISTS idx_hired_employees_datetime ON hired_employees(datetime)`,

	// Department/job grouping
	`CREATE INDEX IF NOT EXISTS idx_hired_employees_dept_job ON hired_employees(department_id, job_id)`,
}

// AllSchemaSQL returns all SQL statements needed to initialize the store.
func AllSchemaSQL() []string {
	statements := []string{
		CreateDepartmentsTableSQL,
		CreateJobsTableSQL,
		CreateHiredEmployeesTableSQL,
		CreateIDSequencesTableSQL,
	}
	statements = append(statements, CreateIndexesSQL...)
	return statements
}
