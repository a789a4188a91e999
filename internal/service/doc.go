// Package service contains the application use cases of the tracker. It
// orchestrates domain objects and the repositories defined in internal/store.
//
// Key components:
//
// 1. Account management:
//   - UserServiceImpl registers users, mails activation links and
//     authenticates logins
//
// 2. Project and issue management:
//   - ProjectService enforces owner and member rules on projects
//   - IssueService lets every project participant create and change issues
//   - AttachmentService stores files uploaded to issues
//
// 3. Deadline reminders:
//   - Every issue write hands the resulting IssueChanges to DeadlineService
//   - DeadlineService notifies assignees and keeps exactly one scheduled
//     reminder per issue through the deadline registry
//
// 4. Error Handling:
//   - Failures are wrapped in ServiceError, keeping the store and domain
//     sentinels reachable with errors.Is
//
// The service layer depends on repository interfaces, never on their
// infrastructure implementations.
package service
