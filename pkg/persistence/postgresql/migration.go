package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE packages (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL UNIQUE,
				user_id TEXT NOT NULL DEFAULT '',
				status VARCHAR(32) NOT NULL CHECK (status IN ('pending', 'running', 'approval_required', 'completed', 'failed', 'cancelled')),
				stage VARCHAR(32) NOT NULL,
				progress_percentage INTEGER NOT NULL DEFAULT 0 CHECK (progress_percentage BETWEEN 0 AND 100),
				progress_step TEXT NOT NULL DEFAULT '',
				input_data JSONB,
				analysis_data JSONB,
				artifacts JSONB NOT NULL DEFAULT '{}'::jsonb,
				approval_status VARCHAR(16) NOT NULL DEFAULT 'pending',
				qa_report JSONB,
				error_message TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_packages_status ON packages(status);
			CREATE INDEX idx_packages_user_id ON packages(user_id);
		`,
		2: `
			CREATE TABLE artifacts (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL DEFAULT '',
				type VARCHAR(16) NOT NULL,
				url TEXT NOT NULL DEFAULT '',
				label TEXT NOT NULL DEFAULT '',
				content TEXT NOT NULL DEFAULT '',
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_artifacts_workflow_id ON artifacts(workflow_id);
		`,
	}
}
