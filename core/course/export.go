package course

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

// ExportHeader is the header row of course exports.
var ExportHeader = []string{
	"Course Code",
	"Course Name",
	"Program",
	"Status",
	"Instructors",
	"Modules",
	"Students in Program",
	"Created At",
}

const exportTimeLayout = "2006-01-02 15:04"

// ExportCSV writes the courses matching filter to w, ordered by code.
func (svc *Service) ExportCSV(ctx context.Context, w io.Writer, filter QueryFilter) error {
	page, err := svc.Repo.QueryCourses(ctx, filter, core.PageQuery{
		Orderings: []core.DBOrdering{{Field: "code", Ascending: true}},
	})
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	courses := page.Items

	var programIDs, instructorIDs, courseIDs []string
	for _, c := range courses {
		programIDs = append(programIDs, c.ProgramID)
		instructorIDs = append(instructorIDs, c.InstructorIDs...)
		courseIDs = append(courseIDs, c.ID)
	}
	programIDs = dedupe(programIDs)
	instructorIDs = dedupe(instructorIDs)

	programs, err := svc.Programs.GetPrograms(ctx, programIDs...)
	if err != nil {
		return errors.Wrap(err, "getting programs")
	}
	instructors, err := svc.Instructors.GetMany(ctx, instructorIDs...)
	if err != nil {
		return errors.Wrap(err, "getting instructors")
	}
	students, err := svc.Students.CountByProgram(ctx, programIDs...)
	if err != nil {
		return errors.Wrap(err, "counting students")
	}
	modules, err := svc.Repo.CountModulesByCourse(ctx, courseIDs...)
	if err != nil {
		return errors.Wrap(err, "counting modules")
	}

	cw := csv.NewWriter(w)
	if err = cw.Write(ExportHeader); err != nil {
		return err
	}
	for _, c := range courses {
		names := make([]string, 0, len(c.InstructorIDs))
		for _, iid := range c.InstructorIDs {
			if ins, ok := instructors[iid]; ok {
				names = append(names, ins.User.Name)
			}
		}
		row := []string{
			c.Code,
			c.Name,
			programs[c.ProgramID].Name,
			c.Status,
			strings.Join(names, "; "),
			strconv.Itoa(modules[c.ID]),
			strconv.Itoa(students[c.ProgramID]),
			c.CreatedAt.UTC().Format(exportTimeLayout),
		}
		if err = cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportToStorage writes the export under exports/ and returns the stored file.
func (svc *Service) ExportToStorage(ctx context.Context, actor core.Actor, filter QueryFilter) (core.StoredFile, error) {
	var buf bytes.Buffer
	if err := svc.ExportCSV(ctx, &buf, filter); err != nil {
		return core.StoredFile{}, err
	}
	name := fmt.Sprintf("courses-%s.csv", core.Now().Format("20060102-150405"))
	stored, err := svc.Storage.Save(ctx, path.Join(core.ExportsDir, name), &buf)
	if err != nil {
		return core.StoredFile{}, errors.Wrap(err, "saving export")
	}
	svc.Logger.Info(fmt.Sprintf("courses exported to %s", stored.Path), actor)
	return stored, nil
}

// CleanupExports deletes the exports older than maxAge. It returns the number of deleted files.
func (svc *Service) CleanupExports(ctx context.Context, maxAge time.Duration) (int, error) {
	files, err := svc.Storage.List(ctx, core.ExportsDir)
	if err != nil {
		return 0, errors.Wrap(err, "listing exports")
	}
	cutoff := core.Now().Add(-maxAge)
	var deleted int
	for _, f := range files {
		if !f.ModTime.Before(cutoff) {
			continue
		}
		if err := svc.Storage.Delete(ctx, f.Path); err != nil {
			svc.Logger.Warn(fmt.Sprintf("deleting export %q: %v", f.Path, err), err)
			continue
		}
		deleted++
	}
	return deleted, nil
}
