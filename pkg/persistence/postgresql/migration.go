package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow graph: workflows, states, transitions, derived grants.
			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL UNIQUE,
				entity_kind VARCHAR(64) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE workflow_states (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				name VARCHAR(255) NOT NULL,
				is_start BOOLEAN NOT NULL DEFAULT FALSE,
				is_end BOOLEAN NOT NULL DEFAULT FALSE,
				position INT NOT NULL DEFAULT 0,
				UNIQUE (workflow_id, name)
			);

			-- Exactly one start state per workflow.
			CREATE UNIQUE INDEX idx_workflow_states_single_start
				ON workflow_states(workflow_id) WHERE is_start;

			CREATE TABLE workflow_transitions (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				source_state_id UUID NOT NULL REFERENCES workflow_states(id) ON DELETE CASCADE,
				dest_state_id UUID NOT NULL REFERENCES workflow_states(id) ON DELETE CASCADE,
				name VARCHAR(255) NOT NULL,
				position INT NOT NULL DEFAULT 0,
				UNIQUE (workflow_id, source_state_id, name)
			);

			CREATE TABLE workflow_grants (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				transition_id UUID NOT NULL UNIQUE REFERENCES workflow_transitions(id) ON DELETE CASCADE,
				token VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
		`,
		2: `
			-- Reference data and measurements.
			CREATE TABLE regions (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				external_id VARCHAR(64) NOT NULL UNIQUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE sites (
				id UUID PRIMARY KEY,
				region_id UUID NOT NULL REFERENCES regions(id) ON DELETE CASCADE,
				name VARCHAR(255) NOT NULL,
				external_id VARCHAR(64) NOT NULL UNIQUE,
				description TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE pollutants (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				external_id VARCHAR(64) NOT NULL UNIQUE,
				unit VARCHAR(32) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE measurements (
				id UUID PRIMARY KEY,
				site_id UUID NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
				pollutant_id UUID NOT NULL REFERENCES pollutants(id) ON DELETE CASCADE,
				measured_at TIMESTAMP WITH TIME ZONE NOT NULL,
				value DOUBLE PRECISION,
				external_id VARCHAR(64) NOT NULL UNIQUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_measurements_measured_at ON measurements(measured_at);
			CREATE INDEX idx_measurements_site_pollutant ON measurements(site_id, pollutant_id);
		`,
		3: `
			-- Rules and workflow-attached alerts.
			CREATE TABLE alert_rules (
				id UUID PRIMARY KEY,
				site_id UUID NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
				pollutant_id UUID NOT NULL REFERENCES pollutants(id) ON DELETE CASCADE,
				name VARCHAR(255) NOT NULL,
				external_id VARCHAR(64) NOT NULL UNIQUE,
				threshold DOUBLE PRECISION NOT NULL,
				comparison VARCHAR(8) NOT NULL CHECK (comparison IN ('above', 'below')),
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (site_id, pollutant_id, name)
			);

			CREATE TABLE alerts (
				id UUID PRIMARY KEY,
				rule_id UUID NOT NULL REFERENCES alert_rules(id) ON DELETE CASCADE,
				measurement_id UUID NOT NULL REFERENCES measurements(id) ON DELETE CASCADE,
				triggered_at TIMESTAMP WITH TIME ZONE NOT NULL,
				value DOUBLE PRECISION NOT NULL,
				note TEXT NOT NULL DEFAULT '',
				workflow_id UUID REFERENCES workflows(id),
				workflow_state_id UUID REFERENCES workflow_states(id),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (rule_id, measurement_id)
			);

			CREATE INDEX idx_alerts_rule_state ON alerts(rule_id, workflow_state_id);
			CREATE INDEX idx_alerts_triggered_at ON alerts(triggered_at);
		`,
	}
}
