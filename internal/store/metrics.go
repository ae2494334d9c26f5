package store

import (
	"context"
	"fmt"

	hrerrors "github.com/hrload/hrload/internal/errors"
)

// QuarterHires is the number of hires of one department/job pair per quarter.
type QuarterHires struct {
	Department string `json:"department"`
	Job        string `json:"job"`
	Q1         int64  `json:"Q1"`
	Q2         int64  `json:"Q2"`
	Q3         int64  `json:"Q3"`
	Q4         int64  `json:"Q4"`
}

// DepartmentHires is the number of hires of one department in a year.
type DepartmentHires struct {
	ID         int64  `json:"id"`
	Department string `json:"department"`
	Hired      int64  `json:"hired"`
}

const hiresPerQuarterSQL = `
SELECT d.department, j.job,
    SUM(CASE WHEN q.quarter = 1 THEN 1 ELSE 0 END) AS q1,
    SUM(CASE WHEN q.quarter = 2 THEN 1 ELSE 0 END) AS q2,
    SUM(CASE WHEN q.quarter = 3 THEN 1 ELSE 0 END) AS q3,
    SUM(CASE WHEN q.quarter = 4 THEN 1 ELSE 0 END) AS q4
FROM (
    SELECT department_id, job_id,
        (CAST(strftime('%m', datetime) AS INTEGER) + 2) / 3 AS quarter
    FROM hired_employees
    WHERE strftime('%Y', datetime) = ?
) q
JOIN departments d ON d.id = q.department_id
JOIN jobs j ON j.id = q.job_id
GROUP BY d.department, j.job
ORDER BY d.department, j.job`

const aboveMeanHiresSQL = `
WITH dept_hires AS (
    SELECT d.id, d.department, COUNT(*) AS hired
    FROM hired_employees he
    JOIN departments d ON d.id = he.department_id
    WHERE strftime('%Y', he.datetime) = ?
    GROUP BY d.id, d.department
)
SELECT id, department, hired
FROM dept_hires
WHERE hired > (SELECT AVG(hired) FROM dept_hires)
ORDER BY hired DESC, id`

// HiresPerQuarter counts hires per department/job pair in each quarter of
// year, ordered by department then job.
func (s *Store) HiresPerQuarter(ctx context.Context, year int) ([]QuarterHires, error) {
	rows, err := s.db.QueryContext(ctx, hiresPerQuarterSQL, fmt.Sprintf("%04d", year))
	if err != nil {
		return nil, hrerrors.NewStoreError("failed to query hires per quarter", err)
	}
	defer rows.Close()

	out := []QuarterHires{}
	for rows.Next() {
		var h QuarterHires
		if err := rows.Scan(&h.Department, &h.Job, &h.Q1, &h.Q2, &h.Q3, &h.Q4); err != nil {
			return nil, hrerrors.NewStoreError("failed to scan hires per quarter", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, hrerrors.NewStoreError("error iterating hires per quarter", err)
	}
	return out, nil
}

// AboveMeanHires returns the departments that hired more people in year than
// the mean across departments that hired at all, most hires first.
func (s *Store) AboveMeanHires(ctx context.Context, year int) ([]DepartmentHires, error) {
	rows, err := s.db.QueryContext(ctx, aboveMeanHiresSQL, fmt.Sprintf("%04d", year))
	if err != nil {
		return nil, hrerrors.NewStoreError("failed to query above-mean hires", err)
	}
	defer rows.Close()

	out := []DepartmentHires{}
	for rows.Next() {
		var h DepartmentHires
		if err := rows.Scan(&h.ID, &h.Department, &h.Hired); err != nil {
			return nil, hrerrors.NewStoreError("failed to scan above-mean hires", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, hrerrors.NewStoreError("error iterating above-mean hires", err)
	}
	return out, nil
}
