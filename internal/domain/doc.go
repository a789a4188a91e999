// Package domain holds the tracker entities (users, projects, issues and
// attachments), their validation rules and the issue change detection that
// drives notifications and deadline reminders.
package domain
