package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create editor drafts table
			CREATE TABLE editor_drafts (
				session_id VARCHAR(255) PRIMARY KEY,
				entity_id VARCHAR(255),
				entity JSONB NOT NULL,
				graph JSONB NOT NULL DEFAULT '{"nodes":[],"edges":[]}',
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_editor_drafts_entity_id ON editor_drafts(entity_id);
			CREATE INDEX idx_editor_drafts_updated_at ON editor_drafts(updated_at);
		`,
	}
}
