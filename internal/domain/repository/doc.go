// Package repository define los contratos de acceso a datos del dominio.
//
// Tres colecciones independientes, cada una con su interfaz:
//   - UserRepository: usuarios (credenciales, flag requires_2fa)
//   - SecretRepository: secretos TOTP (uno por usuario, creado lazy)
//   - SessionRepository: sesiones por (usuario, dispositivo)
//
// Los adapters concretos viven en internal/store/adapters. Las invariantes de
// unicidad (un secreto por usuario, una sesión por par usuario/dispositivo)
// las garantiza cada adapter de forma atómica y se reportan como ErrConflict;
// el orquestador nunca hace check-then-act sobre ellas.
package repository
