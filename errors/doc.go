/*
Package errors provides semantic error types for dirsync.

Store-level errors are sentinels with typed wrappers that match them through
errors.Is:

	var (
	    ErrNotFound        = errors.New("record not found")
	    ErrAlreadyExists   = errors.New("record already exists")
	    ErrInvalidInput    = errors.New("invalid input")
	    ErrConditionFailed = errors.New("condition check failed")
	)

Run-level failures carry a Kind so callers branch on the kind rather than on
named error types:

	summary, err := ctl.Start(ctx)
	switch errors.KindOf(err) {
	case errors.KindAlreadyRunning, errors.KindConfigurationMissing:
	    logger.Warn("skipping run", zap.Error(err))
	case errors.KindDirectoryReadFailure:
	    return err
	}

Kinds:
  - ConfigurationMissing: directory connection settings are absent
  - AlreadyRunning: another run holds the run lock
  - DirectoryReadFailure: the snapshot could not be read; nothing was written
  - EntityApplyFailure: one entity could not be written; the run continues
  - TerminationTimeout: a stopped run did not terminate within the poll bound
  - VersionConflict: a versioned write lost against a concurrent mutation
*/
package errors
