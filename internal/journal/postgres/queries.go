package postgres

// SQL for the journal, summary and tag tables.

const (
	// queryInsertEntry appends one journal row. The BIGSERIAL ordering column
	// is the global ordering token; RETURNING hands it back so the summary
	// update in the same transaction can record the bounds. The primary key
	// on (persistence_id, sequence_number) is the correctness backstop
	// against a second writer for the same id.
	queryInsertEntry = `
		INSERT INTO journal (
			persistence_id, sequence_number, deleted, payload, tag_ids, metadata
		)
		VALUES ($1, $2, FALSE, $3, $4, $5)
		RETURNING ordering
	`

	// queryUpsertMetadata maintains the per-id summary row. The WHERE guard
	// is the compare-and-swap monotonic invariant: an update that would not
	// raise max_sequence_number matches zero rows, which the caller turns
	// into a rollback. min_ordering only ever shrinks, max_ordering follows
	// the newest write.
	queryUpsertMetadata = `
		INSERT INTO journal_metadata (
			persistence_id, shard, max_sequence_number, min_ordering, max_ordering
		)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (persistence_id) DO UPDATE SET
			max_sequence_number = EXCLUDED.max_sequence_number,
			min_ordering        = LEAST(journal_metadata.min_ordering, EXCLUDED.min_ordering),
			max_ordering        = EXCLUDED.max_ordering
		WHERE journal_metadata.max_sequence_number < EXCLUDED.max_sequence_number
	`

	querySoftDelete = `
		UPDATE journal
		SET deleted = TRUE
		WHERE persistence_id = $1
		  AND sequence_number <= $2
		  AND NOT deleted
	`

	// queryHighestCovered finds the highest sequence number a hard delete is
	// about to remove, so the deletion marker records what was actually
	// deleted rather than the caller's upper bound.
	queryHighestCovered = `
		SELECT COALESCE(MAX(sequence_number), 0)
		FROM journal
		WHERE persistence_id = $1
		  AND sequence_number <= $2
	`

	queryUpsertDeletedTo = `
		INSERT INTO deleted_to (persistence_id, deleted_to)
		VALUES ($1, $2)
		ON CONFLICT (persistence_id) DO UPDATE SET
			deleted_to = GREATEST(deleted_to.deleted_to, EXCLUDED.deleted_to)
	`

	queryHardDelete = `
		DELETE FROM journal
		WHERE persistence_id = $1
		  AND sequence_number <= $2
	`

	// queryHighestSequenceNr combines live and tombstoned rows with the
	// deletion marker, so an id whose events were fully purged still reports
	// its true maximum instead of zero.
	queryHighestSequenceNr = `
		SELECT GREATEST(
			COALESCE((
				SELECT MAX(sequence_number) FROM journal
				WHERE persistence_id = $1 AND sequence_number >= $2
			), 0),
			COALESCE((
				SELECT deleted_to FROM deleted_to
				WHERE persistence_id = $1
			), 0)
		)
	`

	queryRangeEntries = `
		SELECT persistence_id, sequence_number, ordering, deleted, payload, tag_ids, metadata
		FROM journal
		WHERE persistence_id = $1
		  AND sequence_number >= $2
		  AND sequence_number <= $3
		  AND NOT deleted
		ORDER BY sequence_number ASC
		LIMIT $4
	`

	// queryRangeEntriesPruned is the metadata-assisted read path: the extra
	// ordering bound lets a backend partitioned by ordering ranges prune
	// segments that cannot contain matches. Same result set as
	// queryRangeEntries, cheaper plan.
	queryRangeEntriesPruned = `
		SELECT persistence_id, sequence_number, ordering, deleted, payload, tag_ids, metadata
		FROM journal
		WHERE persistence_id = $1
		  AND sequence_number >= $2
		  AND sequence_number <= $3
		  AND ordering >= $4
		  AND NOT deleted
		ORDER BY sequence_number ASC
		LIMIT $5
	`

	queryPersistenceIDs = `
		SELECT DISTINCT persistence_id FROM journal
	`

	queryMinMaxOrdering = `
		SELECT max_sequence_number, min_ordering, max_ordering
		FROM journal_metadata
		WHERE persistence_id = $1
	`

	// queryRewritePayload is the maintenance path that rewrites one row's
	// payload and metadata in place. Never used by normal writes or deletes.
	queryRewritePayload = `
		UPDATE journal
		SET payload = $3, metadata = $4
		WHERE persistence_id = $1
		  AND sequence_number = $2
	`

	// queryInsertTag allocates a tag id with insert-if-absent semantics.
	// ON CONFLICT DO NOTHING returns no rows for a lost race; the resolver
	// then re-reads the winning id.
	queryInsertTag = `
		INSERT INTO tags (name)
		VALUES ($1)
		ON CONFLICT (name) DO NOTHING
		RETURNING id
	`

	querySelectTag = `
		SELECT id FROM tags WHERE name = $1
	`
)
